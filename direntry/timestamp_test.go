package direntry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDateRoundTrip(t *testing.T) {
	original := time.Date(2024, time.March, 15, 0, 0, 0, 0, time.Local)
	packed := PackDate(original)
	year, month, day := UnpackDate(packed)
	assert.Equal(t, 2024, year)
	assert.Equal(t, time.March, month)
	assert.Equal(t, 15, day)
}

func TestPackDateClampsToDOSRange(t *testing.T) {
	tooEarly := time.Date(1970, time.January, 1, 0, 0, 0, 0, time.Local)
	year, _, _ := UnpackDate(PackDate(tooEarly))
	assert.Equal(t, dosEpochYear, year)

	tooLate := time.Date(3000, time.January, 1, 0, 0, 0, 0, time.Local)
	year, _, _ = UnpackDate(PackDate(tooLate))
	assert.Equal(t, dosMaxYear, year)
}

func TestTimestampRoundTripsToEvenSecond(t *testing.T) {
	original := time.Date(2024, time.March, 15, 13, 45, 32, 0, time.Local)
	date, timeField, tenths := UnixToDOS(original)
	decoded := Timestamp(date, timeField, tenths)
	assert.True(t, decoded.Equal(original))
}

func TestTimestampRecoversOddSecondViaTenths(t *testing.T) {
	original := time.Date(2024, time.March, 15, 13, 45, 33, 0, time.Local)
	date, timeField, tenths := UnixToDOS(original)
	decoded := Timestamp(date, timeField, tenths)
	assert.True(t, decoded.Equal(original))
}

func TestPackTenthsRoundsNanoseconds(t *testing.T) {
	t1 := time.Date(2024, time.March, 15, 13, 45, 32, 250_000_000, time.Local)
	assert.Equal(t, uint8(25), PackTenths(t1))
}
