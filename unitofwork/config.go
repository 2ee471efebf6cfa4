package unitofwork

// Config toggles the change tracking policies of a unit of work.
type Config struct {
	// AutomaticDirtyChecking compares every managed entity on commit. When
	// false only entities passed to Save, ScheduleForDirtyCheck or
	// RegisterDirty are compared.
	AutomaticDirtyChecking bool `toml:"automatic_dirty_checking" env:"AUTOMATIC_DIRTY_CHECKING"`
	// ValidateFields runs the field rules of the mapping while computing
	// change sets.
	ValidateFields bool `toml:"validate_fields" env:"VALIDATE_FIELDS"`
	// ImmediatePostInsert makes Save insert entities whose identifier is
	// generated by storage right away, together with the other new
	// entities reached by the same cascade.
	ImmediatePostInsert bool `toml:"immediate_post_insert" env:"IMMEDIATE_POST_INSERT"`
}

// DefaultConfig returns the default policies.
func DefaultConfig() Config {
	return Config{
		AutomaticDirtyChecking: true,
		ValidateFields:         true,
		ImmediatePostInsert:    true,
	}
}
