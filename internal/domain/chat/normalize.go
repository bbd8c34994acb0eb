package chat

// NormalizeRoles assigns a role to every message whose role is missing or
// invalid. Doctor messages and even positions become assistant, odd
// positions become user. Valid roles are left alone, so a second pass
// changes nothing. It returns the repaired slice and the number of fixes.
func NormalizeRoles(messages []Message) ([]Message, int) {
	out := make([]Message, len(messages))
	fixed := 0
	for i, m := range messages {
		if !validMessageRoles[m.Role] {
			if m.FromDoctor || i%2 == 0 {
				m.Role = RoleAssistant
			} else {
				m.Role = RoleUser
			}
			fixed++
		}
		out[i] = m
	}
	return out, fixed
}
