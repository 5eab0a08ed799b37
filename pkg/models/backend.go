package models

// Classification is the backend's answer to a scan: the initial approval
// state and a best-effort snapshot of the person.
type Classification struct {
	ScanType string        `json:"scanType"`
	Message  string        `json:"message,omitempty"`
	Person   *PersonRecord `json:"person,omitempty"`
}

type ApprovalResult struct {
	Message       string        `json:"message"`
	UpdatedPerson *PersonRecord `json:"person,omitempty"`
}
