package fanout

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/technosupport/airfield-guard/internal/model"
)

// EncodeObjectDetected builds an ME_OD line for a tick's qualifying
// detections: `ME_OD:` then semicolon-joined `oid,CLASS,mx,my,AREA[,rlevel]`
// entries, newline-terminated.
func EncodeObjectDetected(dets []model.Detection, areaNames map[int]string) []byte {
	entries := make([]string, 0, len(dets))
	for _, d := range dets {
		entry := fmt.Sprintf("%d,%s,%d,%d,%s", d.ObjectID, d.Class, d.MapX, d.MapY, areaNames[d.AreaID])
		if d.Class == model.ClassPerson {
			entry += "," + strconv.Itoa(d.RescueLevel)
		}
		entries = append(entries, entry)
	}
	return []byte("ME_OD:" + strings.Join(entries, ";") + "\n")
}

// EncodeFirstDetection builds the ME_FD header + raw image bytes. Header
// for PERSON carries rescue_level; other classes omit it.
func EncodeFirstDetection(rec model.FirstDetectionRecord, areaName string, image []byte) []byte {
	ts := rec.Timestamp.UTC().Format(time.RFC3339)
	var header string
	if rec.Class == model.ClassPerson {
		header = fmt.Sprintf("%d,%d,%s,%d,%d,%s,%s,%d,%d",
			int(rec.EventType), rec.ObjectID, rec.Class, rec.MapX, rec.MapY, areaName, ts, rec.RescueLevel, len(image))
	} else {
		header = fmt.Sprintf("%d,%d,%s,%d,%d,%s,%s,%d",
			int(rec.EventType), rec.ObjectID, rec.Class, rec.MapX, rec.MapY, areaName, ts, len(image))
	}

	out := make([]byte, 0, len("ME_FD:")+len(header)+1+len(image))
	out = append(out, "ME_FD:"...)
	out = append(out, header...)
	out = append(out, ',')
	out = append(out, image...)
	return out
}

// EncodeZoneStatus builds ME_RA/ME_RB depending on which runway area the
// transition belongs to. runwayLetter is "A" or "B".
func EncodeZoneStatus(runwayLetter string, status model.ZoneStatus) []byte {
	code := "0"
	if status == model.ZoneHazard {
		code = "1"
	}
	return []byte(fmt.Sprintf("ME_R%s:%s\n", runwayLetter, code))
}

// EncodeBirdRisk builds ME_BR:{1|2|3}, where 1 is HIGH, 2 MEDIUM and 3
// LOW: the reverse of model.BirdRiskLevel's own numbering.
func EncodeBirdRisk(level model.BirdRiskLevel) []byte {
	code := 0
	switch level {
	case model.BirdRiskHigh:
		code = 1
	case model.BirdRiskMedium:
		code = 2
	case model.BirdRiskLow:
		code = 3
	}
	return []byte(fmt.Sprintf("ME_BR:%d\n", code))
}

// EncodeMapCalibrated builds the bare ME_MC marker.
func EncodeMapCalibrated() []byte {
	return []byte("ME_MC\n")
}
