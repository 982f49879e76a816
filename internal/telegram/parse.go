package telegram

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
)

var (
	beforeRe    = regexp.MustCompile(`before=([0-9]+)`)
	countRe     = regexp.MustCompile(`^([0-9]+(?:\.[0-9]+)?)([KkMm])?$`)
	manyNewline = regexp.MustCompile(`\n{3,}`)
)

// page is one parsed preview page.
type page struct {
	title  string
	posts  []Post
	before string // cursor for the next (older) page, empty when exhausted
}

func parsePage(body []byte, username string) (*page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	p := &page{
		title: strings.TrimSpace(doc.Find(".tgme_channel_info_header_title").First().Text()),
	}

	doc.Find(".tgme_widget_message_wrap").Each(func(_ int, wrap *goquery.Selection) {
		msg := wrap.Find(".tgme_widget_message[data-post]").First()
		dataPost, ok := msg.Attr("data-post")
		if !ok {
			return
		}
		id := dataPost
		if i := strings.LastIndex(dataPost, "/"); i >= 0 {
			id = dataPost[i+1:]
		}
		if id == "" {
			return
		}

		post := Post{
			ChannelUsername: username,
			ChannelTitle:    p.title,
			MessageID:       id,
			Text:            messageText(msg.Find(".tgme_widget_message_text").First()),
			Views:           parseCount(msg.Find(".tgme_widget_message_views").First().Text()),
			Replies:         parseCount(msg.Find(".tgme_widget_message_replies").First().Text()),
			ForwardedFrom:   strings.TrimSpace(msg.Find(".tgme_widget_message_forwarded_from_name").First().Text()),
		}
		if post.ForwardedFrom == "" {
			post.ForwardedFrom = strings.TrimSpace(msg.Find(".tgme_widget_message_forwarded_from").First().Text())
		}
		if dt, ok := msg.Find("time[datetime]").First().Attr("datetime"); ok {
			if t, err := parseTime(dt); err == nil {
				post.Date = t.UTC()
			}
		}
		p.posts = append(p.posts, post)
	})

	more := doc.Find("a.tgme_widget_message_more").First()
	if href, ok := more.Attr("href"); ok {
		if m := beforeRe.FindStringSubmatch(href); m != nil {
			p.before = m[1]
		}
	}
	if p.before == "" {
		if v, ok := more.Attr("data-before"); ok {
			p.before = strings.TrimSpace(v)
		}
	}

	return p, nil
}

// messageText flattens a message body: <br> becomes a newline, NBSP a space,
// and runs of blank lines collapse to one.
func messageText(sel *goquery.Selection) string {
	if sel.Length() == 0 {
		return ""
	}
	sel = sel.Clone()
	sel.Find("br").ReplaceWithHtml("\n")
	text := sel.Text()
	text = strings.ReplaceAll(text, "\u00a0", " ")
	text = strings.ReplaceAll(text, "\r", "")
	text = manyNewline.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// parseCount reads view/reply counters such as "1.2K", "3M" or "12,345".
func parseCount(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if m := countRe.FindStringSubmatch(s); m != nil {
		n, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0
		}
		switch strings.ToUpper(m[2]) {
		case "K":
			n *= 1_000
		case "M":
			n *= 1_000_000
		}
		return int(n)
	}
	n, err := strconv.Atoi(strings.ReplaceAll(s, ",", ""))
	if err != nil {
		return 0
	}
	return n
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return dateparse.ParseAny(s)
}
