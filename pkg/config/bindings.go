package config

// BindingConfig describes one protocol binding to register with the servient.
// Example YAML:
// bindings:
//   - kind: mem
//     host: localhost
//     server: true
//     client: true
//     extra:
//       network: lab
type BindingConfig struct {
    Kind string `mapstructure:"kind"`
    // Host names the server endpoint; its meaning depends on the kind.
    Host   string `mapstructure:"host"`
    Server bool   `mapstructure:"server"`
    Client bool   `mapstructure:"client"`
    // Extra holds binding specific options. In-process bindings read
    // "network" to pick the named network they attach to.
    Extra map[string]any `mapstructure:"extra"`
}
