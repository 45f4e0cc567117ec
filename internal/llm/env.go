package llm

// EnvAdapterFactory attempts to construct an adapter from environment
// variables. The second return reports whether the environment selected this
// provider at all (credentials present but invalid is an error; credentials
// absent is a silent skip).
type EnvAdapterFactory func() (ProviderAdapter, bool, error)

var envFactories []EnvAdapterFactory

// RegisterEnvAdapterFactory is called from provider package init functions.
func RegisterEnvAdapterFactory(f EnvAdapterFactory) {
	envFactories = append(envFactories, f)
}

// RegisterEnvAdapters registers every provider constructible from the
// environment. The first registered provider becomes the default. This is the
// sole place credentials enter the client; the engine never reads them.
func RegisterEnvAdapters(c *Client) (int, error) {
	n := 0
	for _, f := range envFactories {
		adapter, selected, err := f()
		if err != nil {
			return n, err
		}
		if !selected {
			continue
		}
		c.Register(adapter)
		n++
	}
	return n, nil
}
