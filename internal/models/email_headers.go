package models

import (
	"net/textproto"
	"strings"
)

// EmailHeaders is the subset of headers used to classify a message.
type EmailHeaders struct {
	AutoSubmitted      string
	ContentDescription string
	ListUnsubscribe    bool
	Precedence         string
	ReturnPath         string
	ReturnPathExists   bool
	XAutoreply         string
	XAutoresponse      string
	XLoop              bool
	XFailedRecipients  []string
	ReplyTo            string
	ReplyToExists      bool
	Sender             string
	ForwardedFor       string
}

// Headers reads the classification headers from RawHeaders. Header names
// are matched case-insensitively.
func (e *Email) Headers() *EmailHeaders {
	headers := &EmailHeaders{}
	if len(e.RawHeaders) == 0 {
		return headers
	}

	canonical := make(map[string]string, len(e.RawHeaders))
	for k, v := range e.RawHeaders {
		key := textproto.CanonicalMIMEHeaderKey(k)
		switch value := v.(type) {
		case string:
			canonical[key] = value
		case []string:
			canonical[key] = strings.Join(value, ",")
		case []interface{}:
			parts := make([]string, 0, len(value))
			for _, p := range value {
				if s, ok := p.(string); ok {
					parts = append(parts, s)
				}
			}
			canonical[key] = strings.Join(parts, ",")
		}
	}

	get := func(key string) string {
		return strings.TrimSpace(canonical[textproto.CanonicalMIMEHeaderKey(key)])
	}
	exists := func(key string) bool {
		_, ok := canonical[textproto.CanonicalMIMEHeaderKey(key)]
		return ok
	}

	headers.AutoSubmitted = get("Auto-Submitted")
	headers.ContentDescription = get("Content-Description")
	headers.ListUnsubscribe = exists("List-Unsubscribe")
	headers.Precedence = get("Precedence")
	headers.ReturnPath = strings.Trim(get("Return-Path"), "<>")
	headers.ReturnPathExists = exists("Return-Path")
	headers.XAutoreply = get("X-Autoreply")
	headers.XAutoresponse = get("X-Autorespond")
	if headers.XAutoresponse == "" {
		headers.XAutoresponse = get("X-Autoresponse")
	}
	headers.XLoop = exists("X-Loop")
	if failed := get("X-Failed-Recipients"); failed != "" {
		for _, r := range strings.Split(failed, ",") {
			if r = strings.TrimSpace(r); r != "" {
				headers.XFailedRecipients = append(headers.XFailedRecipients, r)
			}
		}
	}
	headers.ReplyTo = get("Reply-To")
	headers.ReplyToExists = exists("Reply-To")
	headers.Sender = get("Sender")
	headers.ForwardedFor = get("X-Forwarded-For")

	return headers
}
