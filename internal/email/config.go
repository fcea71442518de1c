package email

import "fmt"

// Config lists the IMAP mailboxes the mail actions may read. It sits
// under the "email" key of the top-level config.
type Config struct {
	Accounts []AccountConfig `yaml:"accounts"`
}

// Configured reports whether at least one account has a host and a
// username.
func (c Config) Configured() bool {
	for _, a := range c.Accounts {
		if a.IMAP.Host != "" && a.IMAP.Username != "" {
			return true
		}
	}
	return false
}

// ApplyDefaults fills in the IMAPS port and turns TLS on for every port
// except 143.
func (c *Config) ApplyDefaults() {
	for i := range c.Accounts {
		imap := &c.Accounts[i].IMAP
		if imap.Port == 0 {
			imap.Port = 993
		}
		if !imap.TLS && imap.Port != 143 {
			imap.TLS = true
		}
	}
}

// Validate reports the first inconsistency in the account list.
func (c Config) Validate() error {
	seen := make(map[string]bool, len(c.Accounts))
	for i, a := range c.Accounts {
		switch {
		case a.Name == "":
			return fmt.Errorf("email.accounts[%d].name must not be empty", i)
		case seen[a.Name]:
			return fmt.Errorf("email.accounts[%d].name %q is a duplicate", i, a.Name)
		case a.IMAP.Host == "":
			return fmt.Errorf("email.accounts[%d] (%s): imap.host is required", i, a.Name)
		case a.IMAP.Username == "":
			return fmt.Errorf("email.accounts[%d] (%s): imap.username is required", i, a.Name)
		case a.IMAP.Port < 1 || a.IMAP.Port > 65535:
			return fmt.Errorf("email.accounts[%d] (%s): imap.port %d out of range (1-65535)", i, a.Name, a.IMAP.Port)
		}
		seen[a.Name] = true
	}
	return nil
}

// AccountConfig names one mailbox. The name is what a client selects
// with the mail-account cookie or header.
type AccountConfig struct {
	Name string     `yaml:"name"`
	IMAP IMAPConfig `yaml:"imap"`
}

// IMAPConfig holds IMAP server connection parameters.
type IMAPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	// Password supports ${ENV} expansion through the config loader.
	Password string `yaml:"password"`
	TLS      bool   `yaml:"tls"`
}
