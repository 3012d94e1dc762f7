package domain

// Amortization is a fixed-rate installment calculation.
type Amortization struct {
	Principal      float64         `json:"principal"`
	Rate           float64         `json:"rate"`
	Months         int             `json:"months"`
	MonthlyPayment float64         `json:"monthlyPayment"`
	TotalPayment   float64         `json:"totalPayment"`
	TotalInterest  float64         `json:"totalInterest"`
	Schedule       []ScheduleEntry `json:"schedule,omitempty"`
}

// ScheduleEntry is one period of an amortization schedule.
type ScheduleEntry struct {
	Period    int     `json:"period"`
	Payment   float64 `json:"payment"`
	Principal float64 `json:"principal"`
	Interest  float64 `json:"interest"`
	Balance   float64 `json:"balance"`
}
