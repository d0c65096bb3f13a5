package analytics

import "github.com/shopspring/decimal"

const maxScore = 10

var (
	dTwo      = decimal.NewFromInt(2)
	dFour     = decimal.NewFromInt(4)
	dFive     = decimal.NewFromInt(5)
	dTen      = decimal.NewFromInt(10)
	dHundred  = decimal.NewFromInt(100)
	dTwoHalf  = decimal.RequireFromString("2.5")
	subScores = decimal.NewFromInt(7)
)

// ScoreInputs are the derived quantities behind the profile sub-scores.
type ScoreInputs struct {
	CompletedProfileFields int `json:"completedProfileFields"`
	PostCount              int `json:"postCount"`
	TotalEngagement        int `json:"totalEngagement"`
	AcceptedInvitations    int `json:"acceptedInvitations"`
	DistinctMediaTypes     int `json:"distinctMediaTypes"`
	TotalConnections       int `json:"totalConnections"`
	CommentsCreated        int `json:"commentsCreated"`
}

// Scores holds the 0-10 sub-scores and their mean.
type Scores struct {
	ProfileCompleteness int     `json:"profileCompleteness"`
	PostingActivity     int     `json:"postingActivity"`
	EngagementQuality   int     `json:"engagementQuality"`
	NetworkGrowth       int     `json:"networkGrowth"`
	ContentDiversity    int     `json:"contentDiversity"`
	EngagementRate      int     `json:"engagementRate"`
	MutualInteractions  int     `json:"mutualInteractions"`
	Overall             float64 `json:"overall"`
}

// saturate rounds half away from zero and clamps to [0, 10].
func saturate(v decimal.Decimal) int {
	n := v.Round(0).IntPart()
	if n < 0 {
		return 0
	}
	if n > maxScore {
		return maxScore
	}
	return int(n)
}

func ProfileCompleteness(completedFields int) int {
	return saturate(decimal.NewFromInt(int64(completedFields)).Div(dFour).Mul(dTen))
}

func PostingActivity(postCount int) int {
	return saturate(decimal.NewFromInt(int64(postCount)).Div(dTwo))
}

func EngagementQuality(totalEngagement, postCount int) int {
	if postCount <= 0 {
		return 0
	}
	avg := decimal.NewFromInt(int64(totalEngagement)).Div(decimal.NewFromInt(int64(postCount)))
	return saturate(avg.Div(dFive))
}

func NetworkGrowth(acceptedInvitations int) int {
	return saturate(decimal.NewFromInt(int64(acceptedInvitations)).Div(dFive))
}

func ContentDiversity(distinctMediaTypes int) int {
	return saturate(decimal.NewFromInt(int64(distinctMediaTypes)).Mul(dTwoHalf))
}

func EngagementRate(totalEngagement, totalConnections int) int {
	if totalConnections <= 0 {
		return 0
	}
	rate := decimal.NewFromInt(int64(totalEngagement)).Div(decimal.NewFromInt(int64(totalConnections))).Mul(dHundred)
	return saturate(rate.Mul(dTwo))
}

func MutualInteractions(commentsCreated int) int {
	return saturate(decimal.NewFromInt(int64(commentsCreated)).Div(dTwo))
}

// ComputeScores evaluates every sub-score and averages them to one decimal.
func ComputeScores(in ScoreInputs) Scores {
	s := Scores{
		ProfileCompleteness: ProfileCompleteness(in.CompletedProfileFields),
		PostingActivity:     PostingActivity(in.PostCount),
		EngagementQuality:   EngagementQuality(in.TotalEngagement, in.PostCount),
		NetworkGrowth:       NetworkGrowth(in.AcceptedInvitations),
		ContentDiversity:    ContentDiversity(in.DistinctMediaTypes),
		EngagementRate:      EngagementRate(in.TotalEngagement, in.TotalConnections),
		MutualInteractions:  MutualInteractions(in.CommentsCreated),
	}

	sum := decimal.NewFromInt(int64(s.ProfileCompleteness + s.PostingActivity + s.EngagementQuality +
		s.NetworkGrowth + s.ContentDiversity + s.EngagementRate + s.MutualInteractions))
	s.Overall = sum.Div(subScores).Round(1).InexactFloat64()
	return s
}
