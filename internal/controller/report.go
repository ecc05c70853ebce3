package controller

// Report — итог одного прохода fetch_and_sync.
// Форма полей повторяет ответ, который исторически ждут клиенты API.
type Report struct {
	Success      bool     `json:"success"`
	Count        int      `json:"count"`
	RunningCount int      `json:"running_count"`
	Messages     []string `json:"messages"`
	Message      string   `json:"message"`
	Updated      int      `json:"db_updated"`
	Created      int      `json:"db_created"`
	Skipped      int      `json:"db_skipped"`
}

// NamesReport — итог прохода синхронизации имён.
type NamesReport struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Updated int    `json:"updated"`
}

// UnifyReport — итог прохода унификации портов.
type UnifyReport struct {
	Success           bool   `json:"success"`
	Message           string `json:"message"`
	UpdatedGroupCount int    `json:"updated_group_count"`
}
