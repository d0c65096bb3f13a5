package api

import (
	"time"

	"github.com/postpulse/postpulse-backend/internal/analytics"
	"github.com/postpulse/postpulse-backend/internal/pipeline"
	"github.com/postpulse/postpulse-backend/internal/posts"
	"github.com/postpulse/postpulse-backend/internal/repository"
	"github.com/postpulse/postpulse-backend/internal/sources"
	"github.com/postpulse/postpulse-backend/internal/synergy"
)

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type TimelineDTO struct {
	Member      sources.Identity `json:"member"`
	Scope       string           `json:"scope"`
	Count       int              `json:"count"`
	Posts       []posts.Post     `json:"posts"`
	Degraded    []string         `json:"degraded"`
	GeneratedAt int64            `json:"generatedAt"`
}

type AnalyticsDTO struct {
	PostCount   int                `json:"postCount"`
	Analytics   pipeline.Analytics `json:"analytics"`
	Connections int                `json:"connections"`
	Degraded    []string           `json:"degraded"`
	GeneratedAt int64              `json:"generatedAt"`
}

type ScoreDTO struct {
	ID         string                `json:"id"`
	Scores     analytics.Scores      `json:"scores"`
	Inputs     analytics.ScoreInputs `json:"inputs"`
	Profile    posts.Profile         `json:"profile"`
	Degraded   []string              `json:"degraded"`
	ComputedAt int64                 `json:"computedAt"`
}

type ScoreHistoryEntryDTO struct {
	ID         string           `json:"id"`
	Scores     analytics.Scores `json:"scores"`
	ComputedAt int64            `json:"computedAt"`
}

type ScoreHistoryDTO struct {
	Entries []ScoreHistoryEntryDTO `json:"entries"`
}

type AddPartnerRequest struct {
	Name       string `json:"name"`
	PartnerURN string `json:"partnerUrn"`
}

type PartnerDTO struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PartnerURN string `json:"partnerUrn"`
	CreatedAt  int64  `json:"createdAt"`
}

type PartnersDTO struct {
	Partners []PartnerDTO `json:"partners"`
}

type FeedDTO struct {
	Partner            PartnerDTO         `json:"partner"`
	Posts              []synergy.FeedPost `json:"posts"`
	MutualInteractions int                `json:"mutualInteractions"`
	MutualScore        int                `json:"mutualScore"`
	Degraded           []string           `json:"degraded"`
}

func toPartnerDTO(p repository.Partner) PartnerDTO {
	return PartnerDTO{
		ID:         p.ID.String(),
		Name:       p.Name,
		PartnerURN: p.PartnerURN,
		CreatedAt:  p.CreatedAt.UnixMilli(),
	}
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
