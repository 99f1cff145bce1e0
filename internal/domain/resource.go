package domain

// ResourceDescriptor is the structured form of one resource reference after
// argument parsing.
type ResourceDescriptor struct {
	Format            string
	Protocol          string
	Path              string
	FormatArgs        map[string]interface{}
	PassthroughKwargs map[string]interface{}
}

// ResolvedURL identifies one materializable resource instance. Key is the
// string form used for batching and for the table-name lookup.
type ResolvedURL struct {
	Key           string
	CanonicalPath string
	Format        string
	Descriptor    ResourceDescriptor
}

// DatabaseDescriptor describes the database the materialization service bound
// tables into. Driver is "postgres" when empty.
type DatabaseDescriptor struct {
	Driver   string `json:"driver,omitempty"`
	Host     string `json:"host"`
	Port     int    `json:"port,omitempty"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
}

// RewriteResult is the outcome of a successful rewrite. Tables maps every
// resolved URL to the table bound for it.
type RewriteResult struct {
	Database DatabaseDescriptor `json:"database"`
	SQL      string             `json:"sql"`
	Tables   map[string]string  `json:"tables,omitempty"`
}
