package domain

// Arm is one candidate strategy profile in a learner's bandit.
// Alpha and Beta are the Beta-Bernoulli posterior parameters and start
// at the uniform Beta(1,1) prior.
type Arm struct {
	ID               string  `json:"id"`
	Alpha            float64 `json:"alpha"`
	Beta             float64 `json:"beta"`
	PullCount        int     `json:"pull_count"`
	CumulativeReward float64 `json:"cumulative_reward"`
}

// NewArm creates an arm at the uniform prior.
func NewArm(id string) *Arm {
	return &Arm{ID: id, Alpha: 1, Beta: 1}
}

// MeanReward returns the posterior mean alpha/(alpha+beta).
func (a *Arm) MeanReward() float64 {
	return a.Alpha / (a.Alpha + a.Beta)
}

// Reset restores the arm to the uniform prior.
func (a *Arm) Reset() {
	a.Alpha = 1
	a.Beta = 1
	a.PullCount = 0
	a.CumulativeReward = 0
}

// ArmStats is a read-only view of an arm's posterior.
type ArmStats struct {
	ArmID              string     `json:"arm_id"`
	MeanReward         float64    `json:"mean_reward"`
	PullCount          int        `json:"pull_count"`
	ConfidenceInterval [2]float64 `json:"confidence_interval"`
}
