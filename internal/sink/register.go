package sink

// RegisterBuiltinSinks registers all built-in sinks with the registry.
func RegisterBuiltinSinks(registry *Registry) error {
	builtins := []struct {
		t Type
		f Factory
	}{
		{TypeCSV, NewCSVFactory()},
		{TypeJSON, NewJSONFactory()},
		{TypeConsole, NewConsoleFactory()},
		{TypeDatabase, NewDatabaseFactory()},
		{TypeRedis, NewRedisFactory()},
	}
	for _, b := range builtins {
		if err := registry.Register(b.t, b.f); err != nil {
			return err
		}
	}
	return nil
}

// NewDefaultRegistry creates a new registry with all built-in sinks registered.
func NewDefaultRegistry() (*Registry, error) {
	registry := NewRegistry()
	if err := RegisterBuiltinSinks(registry); err != nil {
		return nil, err
	}
	return registry, nil
}
