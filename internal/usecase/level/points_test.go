package level

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistancePoints_Boundaries(t *testing.T) {
	tests := []struct {
		km   float64
		want int
	}{
		{0, 20},
		{0.5, 20},
		{0.51, 15},
		{2, 15},
		{2.1, 10},
		{5, 10},
		{5.5, 5},
		{10, 5},
		{10.0001, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, distancePoints(tt.km), "distance %v km", tt.km)
	}
}

func TestAgePoints(t *testing.T) {
	tests := []struct {
		days int
		want int
	}{
		{400, 10}, {365, 10}, {364, 8}, {180, 8}, {90, 6}, {30, 4}, {7, 2}, {6, 1}, {0, 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, agePoints(tt.days), "%d days", tt.days)
	}
}

func TestReputationBonus(t *testing.T) {
	tests := []struct {
		score int
		want  int
	}{
		{500, 10}, {200, 6}, {150, 4}, {100, 4}, {50, 2}, {49, 0}, {0, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, reputationBonus(tt.score), "score %d", tt.score)
	}
}

func TestNearbyPoints(t *testing.T) {
	assert.Equal(t, 0, nearbyPoints(0))
	assert.Equal(t, 4, nearbyPoints(1))
	assert.Equal(t, 7, nearbyPoints(2))
	assert.Equal(t, 10, nearbyPoints(3))
	assert.Equal(t, 10, nearbyPoints(7))
}

func TestContentPoints(t *testing.T) {
	assert.Equal(t, 7, descriptionPoints(130))
	assert.Equal(t, 7, descriptionPoints(120))
	assert.Equal(t, 5, descriptionPoints(60))
	assert.Equal(t, 3, descriptionPoints(30))
	assert.Equal(t, 0, descriptionPoints(29))

	assert.Equal(t, 3, titlePoints(14))
	assert.Equal(t, 3, titlePoints(12))
	assert.Equal(t, 1, titlePoints(6))
	assert.Equal(t, 0, titlePoints(5))
}

func TestCommunityPoints(t *testing.T) {
	assert.Equal(t, 0, commentPoints(0))
	assert.Equal(t, 3, commentPoints(1))
	assert.Equal(t, 6, commentPoints(3))

	assert.Equal(t, 0, ratingPoints(0))
	assert.Equal(t, 2, ratingPoints(1))
	assert.Equal(t, 4, ratingPoints(4))
}
