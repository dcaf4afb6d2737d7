package model

// DefaultSettingsFile is the file name of the settings document.
const DefaultSettingsFile = "beallitasok.json"

// Credentials holds the static login data for the mail server.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Server   string `json:"server"`
	Email    string `json:"email"`
}

// Login returns the name used to authenticate. The mailbox address is
// used when no explicit username is configured.
func (c Credentials) Login() string {
	if c.Username != "" {
		return c.Username
	}
	return c.Email
}

// Folder is a mail folder the user may include in searches.
type Folder struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

// Settings is the whole settings document. It is always read and
// written as a unit.
type Settings struct {
	Credentials Credentials `json:"credentials"`
	Folders     []Folder    `json:"folders"`
	Subjects    []string    `json:"subjects"`
}

// DefaultSettings returns the document written when no settings file
// exists yet.
func DefaultSettings() *Settings {
	return &Settings{
		Credentials: Credentials{},
		Folders:     []Folder{},
		Subjects:    []string{},
	}
}

// EnabledFolders returns the enabled folders in document order.
func (s *Settings) EnabledFolders() []Folder {
	var enabled []Folder
	for _, f := range s.Folders {
		if f.Enabled {
			enabled = append(enabled, f)
		}
	}
	return enabled
}

// SetEnabled marks exactly the named folders as enabled.
func (s *Settings) SetEnabled(names []string) {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	for i := range s.Folders {
		s.Folders[i].Enabled = want[s.Folders[i].Name]
	}
}

// Clone returns a deep copy of s.
func (s *Settings) Clone() *Settings {
	c := *s
	c.Folders = append([]Folder{}, s.Folders...)
	c.Subjects = append([]string{}, s.Subjects...)
	return &c
}
