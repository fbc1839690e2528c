package builtin

import "github.com/smilemakc/mbflow/internal/plugin"

// RegisterAll registers every built-in plugin into reg. httpClient may
// be nil to use the default *http.Client.
func RegisterAll(reg *plugin.Registry, httpClient HTTPClient) error {
	plugins := []plugin.Plugin{
		NewHTTPPlugin(httpClient),
		NewTransformPlugin(),
		NewConditionalRouterPlugin(),
		NewMergePlugin(),
		NewLLMPlugin(),
	}
	for _, p := range plugins {
		if err := reg.Register(p); err != nil {
			return err
		}
	}
	return nil
}
