package directory

// ExpireNever is the shadowExpire sentinel for accounts that never expire.
const ExpireNever int64 = -1

// User is a posixAccount/shadowAccount record. Numeric shadow fields are
// expressed in days since the Unix epoch.
type User struct {
	Username   string   `json:"username"`
	UID        int      `json:"uidNumber"`
	GID        int      `json:"gidNumber"`
	CommonName string   `json:"cn"`
	Surname    string   `json:"sn"`
	GivenName  string   `json:"givenName,omitempty"`
	HomeDir    string   `json:"homeDirectory"`
	Shell      string   `json:"loginShell"`
	Mail       string   `json:"mail,omitempty"`
	Phone      string   `json:"telephoneNumber,omitempty"`
	Password   string   `json:"userPassword,omitempty"`
	Expire     int64    `json:"shadowExpire"`
	LastChange int64    `json:"shadowLastChange"`
	Groups     []string `json:"groups,omitempty"`
}

// Group is a posixGroup record. Members holds usernames, decoded from the
// member DN values; it never includes users linked by primary gid alone.
type Group struct {
	Name    string   `json:"name"`
	GID     int      `json:"gidNumber"`
	Members []string `json:"members,omitempty"`
}

// HasMember reports whether username appears in the explicit member list.
func (g *Group) HasMember(username string) bool {
	for _, m := range g.Members {
		if m == username {
			return true
		}
	}
	return false
}

// IDRange is a half-open numeric id interval [Min, Max).
type IDRange struct {
	Min int
	Max int
}

// Contains reports whether id falls inside the range.
func (r IDRange) Contains(id int) bool {
	return id >= r.Min && id < r.Max
}
