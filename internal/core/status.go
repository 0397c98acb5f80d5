package core

// Status is the externally readable state surface of a state machine.
// Mutated only by its owner; readers get a snapshot copy.
type Status struct {
	Connecting bool
	Connected  bool
	Publishing bool
	Playing    bool
	Err        string
}

// Result is the outcome of every mutating operation. No operation panics or
// leaks an error across the component boundary.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func OK() Result { return Result{Success: true} }

func Fail(err error) Result {
	if err == nil {
		return Result{Success: true}
	}
	return Result{Success: false, Error: err.Error()}
}
