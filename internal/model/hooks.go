package model

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Идентификаторы генерируются на стороне приложения, чтобы схема одинаково работала в Postgres и SQLite.
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

func (u *User) BeforeCreate(*gorm.DB) error              { ensureID(&u.ID); return nil }
func (c *Client) BeforeCreate(*gorm.DB) error            { ensureID(&c.ID); return nil }
func (p *Provider) BeforeCreate(*gorm.DB) error          { ensureID(&p.ID); return nil }
func (a *Appointment) BeforeCreate(*gorm.DB) error       { ensureID(&a.ID); return nil }
func (s *AvailabilitySlot) BeforeCreate(*gorm.DB) error  { ensureID(&s.ID); return nil }
func (a *AbsenceDay) BeforeCreate(*gorm.DB) error        { ensureID(&a.ID); return nil }
func (j *ReminderJob) BeforeCreate(*gorm.DB) error       { ensureID(&j.ID); return nil }
func (s *Schedule) BeforeCreate(*gorm.DB) error          { ensureID(&s.ID); return nil }
func (e *Event) BeforeCreate(*gorm.DB) error             { ensureID(&e.ID); return nil }
func (r *SupportRequest) BeforeCreate(*gorm.DB) error    { ensureID(&r.ID); return nil }
func (r *MentorshipRequest) BeforeCreate(*gorm.DB) error { ensureID(&r.ID); return nil }
func (o *BookOrder) BeforeCreate(*gorm.DB) error         { ensureID(&o.ID); return nil }
func (r *Review) BeforeCreate(*gorm.DB) error            { ensureID(&r.ID); return nil }
