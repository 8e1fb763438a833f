package actions

// RegisterBuiltins registers the builtin action set on a registry.
func RegisterBuiltins(r *Registry, httpCfg HTTPConfig) error {
	builtins := []Action{
		NewHTTPFetchAction(httpCfg),
		NewBrowserNavigateAction(),
		NewBrowserHarvestAction(),
	}
	for _, a := range builtins {
		if err := r.Register(a); err != nil {
			return err
		}
	}
	return nil
}
