package domain

// Person represents one user account held by the store.
type Person struct {
	Login       string
	Password    string
	DisplayName string
	Metadata    string
}

// PersonPatch carries a partial update. A nil field leaves the stored value untouched.
type PersonPatch struct {
	Login       *string
	Password    *string
	DisplayName *string
	Metadata    *string
}

// Apply returns p with every present patch field replaced.
func (patch PersonPatch) Apply(p Person) Person {
	if patch.Login != nil {
		p.Login = *patch.Login
	}
	if patch.Password != nil {
		p.Password = *patch.Password
	}
	if patch.DisplayName != nil {
		p.DisplayName = *patch.DisplayName
	}
	if patch.Metadata != nil {
		p.Metadata = *patch.Metadata
	}
	return p
}

// IsEmpty reports whether the patch changes nothing.
func (patch PersonPatch) IsEmpty() bool {
	return patch.Login == nil && patch.Password == nil && patch.DisplayName == nil && patch.Metadata == nil
}

// PatchFromPerson builds a patch where every empty field of p means "unchanged".
// A patch built this way can never clear a field.
func PatchFromPerson(p Person) PersonPatch {
	var patch PersonPatch
	if p.Login != "" {
		patch.Login = &p.Login
	}
	if p.Password != "" {
		patch.Password = &p.Password
	}
	if p.DisplayName != "" {
		patch.DisplayName = &p.DisplayName
	}
	if p.Metadata != "" {
		patch.Metadata = &p.Metadata
	}
	return patch
}
