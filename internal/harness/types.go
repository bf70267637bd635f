package harness

// CommandRecord is the outcome of translating a scenario for one dialect.
type CommandRecord struct {
	Kind       string `json:"kind,omitempty"`
	Template   string `json:"template,omitempty"`
	Parameters int    `json:"parameters"`
	Cacheable  bool   `json:"cacheable"`

	// ErrorKind and Error are set when translation failed.
	ErrorKind string `json:"error_kind,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall scenario success.
	Pass bool `json:"pass"`

	// Commands holds the translation outcome per dialect name.
	Commands map[string]*CommandRecord `json:"commands"`

	// Executed reports whether the scenario ran against SQLite.
	Executed bool `json:"executed"`

	// Rows is the SQLite query result, normalized to JSON values.
	Rows any `json:"rows,omitempty"`

	// Affected is the SQLite mutation's affected row count.
	Affected int64 `json:"affected,omitempty"`

	// ExecError is set when execution failed.
	ExecError string `json:"exec_error,omitempty"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Commands: make(map[string]*CommandRecord),
		Errors:   []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
