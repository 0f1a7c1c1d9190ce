package upnp

// StateVariable describes one entry of a Service's service state table.
type StateVariable struct {
	Service      *Service
	Name         string
	DataType     string
	DefaultValue string
	AllowedValue []string
	Minimum      string
	Maximum      string
	Step         string
	SendEvents   bool
}
