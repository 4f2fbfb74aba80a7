package model

import "time"

// LoadSummary aggregates the counters reported after a reconciliation run.
type LoadSummary struct {
	RunID string

	PatientsCreated int64

	DepVisitsLoaded  int64
	DepVisitsSkipped int64

	MedsInserted     int64
	MedVisitsCreated int64
	MedsSkipped      int64

	AnxVisitsLoaded  int64
	AnxVisitsSkipped int64

	DurationTotal time.Duration
}

// RepairSummary aggregates the counters of the sex/risk repair passes.
type RepairSummary struct {
	SexCandidates  int
	SexUpdated     int64
	RiskCandidates int
	RiskUpdated    int64
	DurationTotal  time.Duration
}

// DashboardSummary is the KPI block served to the dashboard front end.
type DashboardSummary struct {
	Patients        int64            `json:"pacientes_count"`
	Visits          int64            `json:"consultas_count"`
	AnxietyPatients int64            `json:"ansiedad_count"`
	DepressionCount int64            `json:"depresion_count"`
	SexCounts       map[string]int64 `json:"sexo_data"`
	TopDiagnoses    []DiagnosisCount `json:"diagnosticos_top"`
	Medications     []string         `json:"med_list"`
}

// DiagnosisCount is one entry of the top-diagnoses ranking.
type DiagnosisCount struct {
	Diagnosis string `json:"diagnostico"`
	Total     int64  `json:"total"`
}
