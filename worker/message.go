package worker

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"econsensus/models"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
)

// errUnroutable marks messages that can never be turned into feedback or comments
var errUnroutable = errors.New("unroutable message")

var (
	replyIDPattern  = regexp.MustCompile(`^(decision|feedback|comment)-(\d+)@(.+)$`)
	subjectPrefixes = regexp.MustCompile(`^(?i)((re|fwd?|aw)\s*:\s*)+`)
	quoteHeader     = regexp.MustCompile(`^On .+ wrote:\s*$`)
)

// Reply is an incoming email reduced to what routing needs
type Reply struct {
	From        string
	Subject     string
	Body        string
	ContentType string
	ObjectID    uint
}

// ParseReply reads a raw RFC 5322 message and resolves the object it answers
// from In-Reply-To, falling back to the last References entry.
func ParseReply(r io.Reader, siteDomain string) (*Reply, error) {
	mr, err := mail.CreateReader(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("%w: %v", errUnroutable, err)
	}

	reply := &Reply{}

	from, err := mr.Header.AddressList("From")
	if err != nil || len(from) == 0 {
		return nil, fmt.Errorf("%w: missing From address", errUnroutable)
	}
	reply.From = strings.ToLower(from[0].Address)

	reply.Subject, _ = mr.Header.Subject()

	contentType, objectID, ok := resolveReplyTarget(&mr.Header, siteDomain)
	if !ok {
		return nil, fmt.Errorf("%w: not a reply to a known message", errUnroutable)
	}
	reply.ContentType = contentType
	reply.ObjectID = objectID

	var text, html string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		} else if err != nil && !message.IsUnknownCharset(err) {
			return nil, fmt.Errorf("failed to read next part: %w", err)
		}

		if h, ok := p.Header.(*mail.InlineHeader); ok {
			contentType, _, _ := h.ContentType()
			b, err := io.ReadAll(p.Body)
			if err != nil {
				return nil, fmt.Errorf("failed to read body: %w", err)
			}

			if strings.Contains(contentType, "text/plain") && text == "" {
				text = string(b)
			} else if strings.Contains(contentType, "text/html") && html == "" {
				html = string(b)
			}
		}
	}

	if text == "" && html != "" {
		text = models.PlainText(html)
	}
	reply.Body = stripQuoted(text)
	return reply, nil
}

func resolveReplyTarget(h *mail.Header, siteDomain string) (string, uint, bool) {
	var candidates []string
	if ids, err := h.MsgIDList("In-Reply-To"); err == nil && len(ids) > 0 {
		candidates = append(candidates, ids[0])
	}
	if refs, err := h.MsgIDList("References"); err == nil && len(refs) > 0 {
		candidates = append(candidates, refs[len(refs)-1])
	}

	for _, id := range candidates {
		match := replyIDPattern.FindStringSubmatch(strings.Trim(id, "<> "))
		if match == nil || !strings.EqualFold(match[3], siteDomain) {
			continue
		}
		objectID, err := strconv.ParseUint(match[2], 10, 32)
		if err != nil || objectID == 0 {
			continue
		}
		return match[1], uint(objectID), true
	}
	return "", 0, false
}

// stripQuoted drops quoted lines and everything after the "On ... wrote:" line
func stripQuoted(body string) string {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	var kept []string
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if quoteHeader.MatchString(trimmed) {
			break
		}
		if strings.HasPrefix(trimmed, ">") {
			continue
		}
		kept = append(kept, strings.TrimRight(line, " \t"))
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// Rating reads a leading "danger:" style token from the subject, then the
// body. The token is removed from the body when found there.
func (r *Reply) Rating() int {
	subject := subjectPrefixes.ReplaceAllString(strings.TrimSpace(r.Subject), "")
	if rating, _, ok := leadingRating(subject); ok {
		return rating
	}
	if rating, rest, ok := leadingRating(r.Body); ok {
		r.Body = strings.TrimSpace(rest)
		return rating
	}
	return models.CommentRating
}

func leadingRating(s string) (int, string, bool) {
	head, rest, found := strings.Cut(strings.TrimSpace(s), ":")
	if !found {
		return 0, "", false
	}
	rating, ok := models.ParseRating(head)
	if !ok {
		return 0, "", false
	}
	return rating, rest, true
}
