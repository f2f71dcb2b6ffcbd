package domain

// MinPasswordLength is the shortest password the store accepts.
const MinPasswordLength = 10

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
func isLower(c byte) bool { return c >= 'a' && c <= 'z' }
func isUpper(c byte) bool { return c >= 'A' && c <= 'Z' }

func isAlnum(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !isDigit(c) && !isLower(c) && !isUpper(c) {
			return false
		}
	}
	return true
}

// ValidateLogin checks the login format. Uniqueness is the store's job.
func ValidateLogin(login string) error {
	if login == "" {
		return &ValidationError{Field: "login", Reason: "must not be empty"}
	}
	if !isAlnum(login) {
		return &ValidationError{Field: "login", Reason: "must contain only ASCII letters and digits"}
	}
	return nil
}

// ValidatePassword checks the password strength policy.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return &ValidationError{Field: "password", Reason: "must be at least 10 characters"}
	}
	if !isAlnum(password) {
		return &ValidationError{Field: "password", Reason: "must contain only ASCII letters and digits"}
	}

	var digit, lower, upper bool
	for i := 0; i < len(password); i++ {
		c := password[i]
		switch {
		case isDigit(c):
			digit = true
		case isLower(c):
			lower = true
		case isUpper(c):
			upper = true
		}
	}
	switch {
	case !digit:
		return &ValidationError{Field: "password", Reason: "must contain a digit"}
	case !lower:
		return &ValidationError{Field: "password", Reason: "must contain a lowercase letter"}
	case !upper:
		return &ValidationError{Field: "password", Reason: "must contain an uppercase letter"}
	}
	return nil
}

// Validate checks both the login format and the password of p.
func (p Person) Validate() error {
	if err := ValidateLogin(p.Login); err != nil {
		return err
	}
	return ValidatePassword(p.Password)
}
