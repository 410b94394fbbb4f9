package dto

type AnalysisRequested struct {
	Tenant  string `json:"tenant"`
	EmailId string `json:"emailId"`
}
