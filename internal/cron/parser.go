// Package cron wraps robfig/cron schedules and runs callbacks on them.
package cron

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

type Schedule interface {
	Next(after time.Time) time.Time
}

type Parser struct {
	parser cron.Parser
}

// NewParser accepts five-field expressions and descriptors such as
// "@daily" or "@every 6h".
func NewParser() *Parser {
	return &Parser{
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

func (p *Parser) Parse(expression string, timezone string) (Schedule, error) {
	sched, err := p.parser.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("parse cron: %w", err)
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}

	return &schedule{sched: sched, loc: loc}, nil
}

type schedule struct {
	sched cron.Schedule
	loc   *time.Location
}

func (s *schedule) Next(after time.Time) time.Time {
	return s.sched.Next(after.In(s.loc))
}

// Every returns a constant-delay schedule. Intervals are truncated to whole
// seconds with a minimum of one second.
func Every(interval time.Duration) Schedule {
	return cron.Every(interval)
}
