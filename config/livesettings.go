package config

// Kinds of runtime setting values
const (
	StringValue   = "string"
	PasswordValue = "password"
	IntegerValue  = "integer"
	BooleanValue  = "boolean"
)

// SettingValue declares one runtime-editable value
type SettingValue struct {
	Key         string `json:"key"`
	Kind        string `json:"kind"`
	Description string `json:"description"`
	HelpText    string `json:"help_text"`
	Default     string `json:"default"`
	Ordering    int    `json:"ordering"`
}

// ConfigurationGroup is a named set of runtime settings stored in the database
type ConfigurationGroup struct {
	Key      string         `json:"key"`
	Name     string         `json:"name"`
	Ordering int            `json:"ordering"`
	Values   []SettingValue `json:"values"`
}

// Value looks up a declared value by key
func (g ConfigurationGroup) Value(key string) (SettingValue, bool) {
	for _, v := range g.Values {
		if v.Key == key {
			return v, true
		}
	}
	return SettingValue{}, false
}

// PostByEmail keys
const (
	PostByEmailUsername   = "USERNAME"
	PostByEmailPassword   = "PASSWORD"
	PostByEmailServer     = "SERVER"
	PostByEmailPort       = "PORT"
	PostByEmailSSLEnabled = "SSL_ENABLED"
)

// PostByEmailGroup holds the mailbox the post-by-email worker polls
var PostByEmailGroup = ConfigurationGroup{
	Key:      "PostByEmail",
	Name:     "Post By Email Settings",
	Ordering: 0,
	Values: []SettingValue{
		{
			Key:         PostByEmailUsername,
			Kind:        StringValue,
			Description: "Username",
			HelpText:    "Enter the Username used to access the email account.",
			Ordering:    0,
		},
		{
			Key:         PostByEmailPassword,
			Kind:        PasswordValue,
			Description: "Password",
			HelpText:    "Enter the password to access this mail account.",
			Ordering:    1,
		},
		{
			Key:         PostByEmailServer,
			Kind:        StringValue,
			Description: "Server",
			HelpText:    "Enter the url of the mail server.",
			Ordering:    2,
		},
		{
			Key:         PostByEmailPort,
			Kind:        IntegerValue,
			Description: "Port",
			HelpText:    "Enter the port number of the mail server.",
			Ordering:    3,
		},
		{
			Key:         PostByEmailSSLEnabled,
			Kind:        BooleanValue,
			Description: "SSL Enabled",
			HelpText:    "Check to enable SSL transfer",
			Default:     "false",
			Ordering:    4,
		},
	},
}
