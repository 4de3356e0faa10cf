package graph

// DateTimeTimeZone is the Graph representation of a point in time: a
// zone-less datetime string plus a timezone name. The name may be a
// Windows display name or an IANA identifier, depending on the request's
// timezone preference.
type DateTimeTimeZone struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone,omitempty"`
}

// Event is the service-facing calendar event, limited to the fields the
// sync layer selects.
type Event struct {
	ID       string           `json:"id,omitempty"`
	Subject  string           `json:"subject"`
	Start    DateTimeTimeZone `json:"start"`
	End      DateTimeTimeZone `json:"end"`
	IsAllDay bool             `json:"isAllDay"`
}

// MailboxSettings carries the user's preferred timezone and time format.
type MailboxSettings struct {
	TimeZone   string `json:"timeZone,omitempty"`
	TimeFormat string `json:"timeFormat,omitempty"`
}

// User is the signed-in account's profile.
type User struct {
	DisplayName       string          `json:"displayName,omitempty"`
	Mail              string          `json:"mail,omitempty"`
	UserPrincipalName string          `json:"userPrincipalName,omitempty"`
	MailboxSettings   MailboxSettings `json:"mailboxSettings"`
}

// Email returns the best available address for the user.
func (u *User) Email() string {
	if u.Mail != "" {
		return u.Mail
	}
	return u.UserPrincipalName
}

// eventsPage is one page of a calendar view response. NextLink is the
// opaque continuation URL for the following page, absent on the last one.
type eventsPage struct {
	Value    []Event `json:"value"`
	NextLink string  `json:"@odata.nextLink,omitempty"`
}

// apiError is the error envelope Graph wraps failures in.
type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
