package fixsource

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/sample"
)

// hdopBaseM scales an HDOP reading into an estimated horizontal accuracy in
// metres. Consumer receivers are commonly assumed to have a ~5m base error.
const hdopBaseM = 5.0

// parsedSentence is one decoded NMEA sentence. Only the talker sentences the
// agent consumes are represented; everything else decodes to kind "".
type parsedSentence struct {
	kind string // "RMC" or "GGA"

	// RMC and GGA
	lat, lng float64
	valid    bool

	// RMC only
	speedMPS float64
	hasSpeed bool
	when     time.Time
	hasTime  bool

	// GGA only
	hdop    float64
	hasHDOP bool
}

// checksumOK verifies the trailing *XX checksum of a raw NMEA line and
// returns the payload between '$' and '*'.
func checksumOK(line string) (string, bool) {
	if len(line) < 4 || line[0] != '$' {
		return "", false
	}
	star := strings.LastIndexByte(line, '*')
	if star < 0 || len(line)-star != 3 {
		return "", false
	}
	want, err := strconv.ParseUint(line[star+1:], 16, 8)
	if err != nil {
		return "", false
	}
	var sum byte
	for i := 1; i < star; i++ {
		sum ^= line[i]
	}
	return line[1:star], sum == byte(want)
}

// parseCoord converts NMEA ddmm.mmmm (or dddmm.mmmm) plus a hemisphere
// letter into signed decimal degrees.
func parseCoord(raw, hemi string) (float64, error) {
	dot := strings.IndexByte(raw, '.')
	if dot < 3 {
		return 0, fmt.Errorf("malformed coordinate %q", raw)
	}
	deg, err := strconv.ParseFloat(raw[:dot-2], 64)
	if err != nil {
		return 0, err
	}
	min, err := strconv.ParseFloat(raw[dot-2:], 64)
	if err != nil {
		return 0, err
	}
	v := deg + min/60
	switch hemi {
	case "S", "W":
		v = -v
	case "N", "E":
	default:
		return 0, fmt.Errorf("unknown hemisphere %q", hemi)
	}
	return v, nil
}

// parseSentence decodes one raw NMEA line. Unsupported sentence types and
// lines failing checksum come back with kind "" and a nil error; the caller
// treats both as noise, not failures.
func parseSentence(line string) (parsedSentence, error) {
	payload, ok := checksumOK(strings.TrimSpace(line))
	if !ok {
		return parsedSentence{}, nil
	}

	fields := strings.Split(payload, ",")
	if len(fields) == 0 || len(fields[0]) < 5 {
		return parsedSentence{}, nil
	}

	// talker prefix (GP, GN, GL...) is irrelevant, dispatch on the suffix
	switch fields[0][2:] {
	case "RMC":
		return parseRMC(fields)
	case "GGA":
		return parseGGA(fields)
	}
	return parsedSentence{}, nil
}

// parseRMC decodes a Recommended Minimum sentence:
// $GPRMC,time,status,lat,N,lng,E,speedKnots,course,date,...
func parseRMC(f []string) (parsedSentence, error) {
	if len(f) < 10 {
		return parsedSentence{}, fmt.Errorf("short RMC sentence: %d fields", len(f))
	}
	p := parsedSentence{kind: "RMC"}
	if f[2] != "A" {
		// "V" means the receiver has no fix yet
		return p, nil
	}

	var err error
	if p.lat, err = parseCoord(f[3], f[4]); err != nil {
		return parsedSentence{}, fmt.Errorf("RMC latitude: %w", err)
	}
	if p.lng, err = parseCoord(f[5], f[6]); err != nil {
		return parsedSentence{}, fmt.Errorf("RMC longitude: %w", err)
	}
	p.valid = true

	if f[7] != "" {
		knots, err := strconv.ParseFloat(f[7], 64)
		if err != nil {
			return parsedSentence{}, fmt.Errorf("RMC speed: %w", err)
		}
		p.speedMPS = knots * 0.514444
		p.hasSpeed = true
	}

	if len(f[1]) >= 6 && len(f[9]) == 6 {
		if t, err := time.Parse("020106 150405", f[9]+" "+f[1][:6]); err == nil {
			p.when = t.UTC()
			p.hasTime = true
		}
	}
	return p, nil
}

// parseGGA decodes a Fix Data sentence:
// $GPGGA,time,lat,N,lng,E,quality,sats,hdop,alt,...
func parseGGA(f []string) (parsedSentence, error) {
	if len(f) < 9 {
		return parsedSentence{}, fmt.Errorf("short GGA sentence: %d fields", len(f))
	}
	p := parsedSentence{kind: "GGA"}
	if f[6] == "" || f[6] == "0" {
		return p, nil
	}

	var err error
	if p.lat, err = parseCoord(f[2], f[3]); err != nil {
		return parsedSentence{}, fmt.Errorf("GGA latitude: %w", err)
	}
	if p.lng, err = parseCoord(f[4], f[5]); err != nil {
		return parsedSentence{}, fmt.Errorf("GGA longitude: %w", err)
	}
	p.valid = true

	if f[8] != "" {
		if p.hdop, err = strconv.ParseFloat(f[8], 64); err != nil {
			return parsedSentence{}, fmt.Errorf("GGA hdop: %w", err)
		}
		p.hasHDOP = true
	}
	return p, nil
}

// fixFromRMC builds the outgoing fix from an RMC sentence, folding in the
// most recent HDOP-derived accuracy if one is known. now supplies the
// timestamp when the sentence carried no usable date.
func fixFromRMC(p parsedSentence, accuracyM *float64, now time.Time) sample.Fix {
	fix := sample.Fix{
		Lat:       p.lat,
		Lng:       p.lng,
		Timestamp: now,
		AccuracyM: accuracyM,
	}
	if p.hasTime {
		fix.Timestamp = p.when
	}
	if p.hasSpeed {
		fix.SpeedMPS = sample.Float64(p.speedMPS)
	}
	return fix
}
