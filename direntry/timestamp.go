package direntry

import "time"

// dosEpochYear and dosMaxYear bound the representable range of a packed
// DOS date; spec.md section 4.4 requires clamping to these endpoints.
const dosEpochYear = 1980
const dosMaxYear = 2107

// PackDate encodes t's year/month/day into a 16-bit DOS date, clamping the
// year to [1980, 2107].
func PackDate(t time.Time) uint16 {
	year := t.Year()
	if year < dosEpochYear {
		year = dosEpochYear
	} else if year > dosMaxYear {
		year = dosMaxYear
	}
	return uint16(year-dosEpochYear)<<9 | uint16(t.Month())<<5 | uint16(t.Day())
}

// PackTime encodes t's hour/minute/second into a 16-bit DOS time. Seconds
// are stored in 2-second resolution.
func PackTime(t time.Time) uint16 {
	return uint16(t.Hour())<<11 | uint16(t.Minute())<<5 | uint16(t.Second()/2)
}

// PackTenths returns the "creation hundredths" byte: the odd second (0 or
// 1) folded in as 100, plus nanoseconds rounded to 10ms units.
func PackTenths(t time.Time) uint8 {
	hundredths := uint8(t.Nanosecond() / 10_000_000)
	if t.Second()%2 == 1 {
		hundredths += 100
	}
	return hundredths
}

// UnpackDate decodes a 16-bit DOS date into year/month/day.
func UnpackDate(d uint16) (year int, month time.Month, day int) {
	year = dosEpochYear + int(d>>9)
	month = time.Month((d >> 5) & 0x0F)
	day = int(d & 0x1F)
	if month < 1 {
		month = 1
	}
	if day < 1 {
		day = 1
	}
	return
}

// Timestamp decodes a DOS date/time/hundredths triple into a local
// time.Time. timePart and hundredths may be zero if the field isn't
// present on disk (LastAccessDate, for instance, has no time component).
func Timestamp(datePart, timePart uint16, hundredths uint8) time.Time {
	year, month, day := UnpackDate(datePart)

	seconds := int(timePart&0x1F) * 2
	nanos := 0
	if hundredths > 0 {
		extraSeconds := int(hundredths) / 100
		remainder := int(hundredths) % 100
		seconds += extraSeconds
		nanos = remainder * 10_000_000
	}
	minutes := int((timePart >> 5) & 0x3F)
	hours := int(timePart >> 11)

	return time.Date(year, month, day, hours, minutes, seconds, nanos, time.Local)
}

// UnixToDOS packs t into a DOS date, time and tenths triple. The date/time
// pair alone is t rounded down to an even second; the tenths byte carries
// the odd second and the remainder in 10 ms units.
func UnixToDOS(t time.Time) (date, timeField uint16, tenths uint8) {
	return PackDate(t), PackTime(t), PackTenths(t)
}
