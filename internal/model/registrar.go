package model

import "golang.org/x/crypto/bcrypt"

// Registrar is a registrar account permitted to open EPP sessions. Accounts
// are administered out of band; the flow engine only reads them.
type Registrar struct {
	ID           string   `json:"id"`
	Name         string   `json:"name,omitempty"`
	PasswordHash string   `json:"password_hash"`
	AllowedTLDs  []string `json:"allowed_tlds,omitempty"`
}

// HashPassword returns the bcrypt hash stored for a registrar password.
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// CheckPassword compares a candidate password against the stored hash.
func (r *Registrar) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(r.PasswordHash), []byte(password)) == nil
}

// MayActOn reports whether the registrar is permitted to operate on the
// given TLD. An empty allow list means all TLDs.
func (r *Registrar) MayActOn(tld string) bool {
	if len(r.AllowedTLDs) == 0 {
		return true
	}
	for _, t := range r.AllowedTLDs {
		if t == tld {
			return true
		}
	}
	return false
}
