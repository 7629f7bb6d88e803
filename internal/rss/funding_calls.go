package rss

import (
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"github.com/david/funding-monitor/internal/fundingcalls"
	"github.com/david/funding-monitor/internal/models"
)

type FeedOptions struct {
	SiteURL     string
	Title       string
	Description string
}

const (
	defaultTitle       = "Fördermittel Monitor"
	defaultDescription = "Aktuelle Fördermittelausschreibungen"
	noDescription      = "Keine Beschreibung verfügbar"
)

// BuildFundingCallsFeed renders calls as an RSS 2.0 channel. sourceNames maps
// source ids to display names for the Quelle line and category.
func BuildFundingCallsFeed(calls []models.FundingCall, sourceNames map[int64]string, opts FeedOptions, now time.Time) RSS {
	title := opts.Title
	if title == "" {
		title = defaultTitle
	}
	description := opts.Description
	if description == "" {
		description = defaultDescription
	}
	siteURL := strings.TrimSuffix(opts.SiteURL, "/")

	feed := RSS{
		Version: "2.0",
		AtomNS:  "http://www.w3.org/2005/Atom",
		Channel: Channel{
			Title:         title,
			Link:          siteURL + "/",
			Description:   description,
			Language:      "de",
			LastBuildDate: now.Format(time.RFC1123Z),
			Generator:     "funding-monitor",
			SelfLink: &AtomLink{
				Href: siteURL + "/api/v1/funding-calls/rss",
				Rel:  "self",
				Type: "application/rss+xml",
			},
			Items: []Item{},
		},
	}

	for _, call := range calls {
		n := fundingcalls.Normalize(call)
		source := sourceLabel(call, sourceNames)

		item := Item{
			Title:       call.Title,
			Description: enhancedDescription(n, source),
		}
		if n.SourceURL != nil {
			item.Link = *n.SourceURL
			item.GUID = &GUID{Value: *n.SourceURL, IsPermaLink: true}
		} else {
			item.GUID = &GUID{Value: "funding-call-" + strconv.FormatInt(call.ID, 10)}
		}
		if call.CreatedAt != nil {
			item.PubDate = call.CreatedAt.UTC().Format(time.RFC1123Z)
		}
		if source != "" {
			item.Categories = append(item.Categories, Category{Value: source})
		}
		for _, c := range n.Categories {
			item.Categories = append(item.Categories, Category{Value: c})
		}
		feed.Channel.Items = append(feed.Channel.Items, item)
	}
	return feed
}

func sourceLabel(call models.FundingCall, names map[int64]string) string {
	if call.SourceID != nil {
		if name, ok := names[*call.SourceID]; ok {
			return name
		}
	}
	return ""
}

func enhancedDescription(n fundingcalls.NormalizedFundingCall, source string) string {
	var b strings.Builder

	if n.Description != nil {
		b.WriteString(html.EscapeString(*n.Description))
	} else {
		b.WriteString(noDescription)
	}
	b.WriteString("<br/><br/><strong>Details:</strong><br/>")

	if n.DisplayDeadline != nil {
		deadline := *n.DisplayDeadline
		if t, ok := fundingcalls.ParseDeadline(deadline); ok {
			deadline = t.Format("02.01.2006")
		}
		fmt.Fprintf(&b, "<strong>Frist:</strong> %s<br/>", html.EscapeString(deadline))
	}
	if n.FundingAmount != nil {
		fmt.Fprintf(&b, "<strong>Fördersumme:</strong> %s<br/>", html.EscapeString(*n.FundingAmount))
	}
	if n.Duration != nil {
		fmt.Fprintf(&b, "<strong>Laufzeit:</strong> %s<br/>", html.EscapeString(*n.Duration))
	}
	if len(n.TargetGroups) > 0 {
		fmt.Fprintf(&b, "<strong>Zielgruppen:</strong> %s<br/>", html.EscapeString(strings.Join(n.TargetGroups, ", ")))
	}

	quelle := source
	if quelle == "" && n.SourceURL != nil {
		quelle = *n.SourceURL
	}
	if quelle != "" {
		fmt.Fprintf(&b, "<br/><strong>Quelle:</strong> %s", html.EscapeString(quelle))
	}
	return b.String()
}
