package record

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/james-langridge/mars-vista-api-sub000/pkg/config"
)

// solRatio is the length of one sol in earth days.
var solRatio = decimal.RequireFromString("1.0274912517")

var secondsPerDay = decimal.NewFromInt(86400)

// EarthDate returns the UTC calendar date on which sol began, given the landing date (sol 0).
func EarthDate(landing time.Time, sol int64) time.Time {
	seconds := decimal.NewFromInt(sol).Mul(solRatio).Mul(secondsPerDay).IntPart()
	t := landing.UTC().Add(time.Duration(seconds) * time.Second)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Extractor extracts items for one source.
type Extractor struct {
	landing time.Time
}

// NewExtractor returns an extractor using the source's landing date as the sol epoch.
func NewExtractor(src config.SourceConfig) *Extractor {
	return &Extractor{landing: src.Landing()}
}

// item mirrors the feed item with every field left raw so one mistyped field cannot
// fail decoding of the whole item.
type item struct {
	ImageID      json.RawMessage `json:"imageid"`
	Sol          json.RawMessage `json:"sol"`
	SampleType   json.RawMessage `json:"sample_type"`
	Camera       json.RawMessage `json:"camera"`
	ImageFiles   json.RawMessage `json:"image_files"`
	URL          json.RawMessage `json:"url"`
	HTTPSURL     json.RawMessage `json:"https_url"`
	Extended     json.RawMessage `json:"extended"`
	Site         json.RawMessage `json:"site"`
	Drive        json.RawMessage `json:"drive"`
	Attitude     json.RawMessage `json:"attitude"`
	DateTakenUTC json.RawMessage `json:"date_taken_utc"`
	DateTaken    json.RawMessage `json:"date_taken"`
	Caption      json.RawMessage `json:"caption"`
	Title        json.RawMessage `json:"title"`
}

type camera struct {
	Instrument json.RawMessage `json:"instrument"`
}

type imageFiles struct {
	FullRes json.RawMessage `json:"full_res"`
}

type extended struct {
	MastAz json.RawMessage `json:"mastAz"`
	MastEl json.RawMessage `json:"mastEl"`
	Sclk   json.RawMessage `json:"sclk"`
	XYZ    json.RawMessage `json:"xyz"`
}

// Extract walks every item of the page. It never aborts on a bad item; the item is
// reported in Errors and the rest are still extracted.
func (e *Extractor) Extract(p *Page) *Extraction {
	out := &Extraction{Items: len(p.Images)}

	for i, raw := range p.Images {
		var it item
		if err := json.Unmarshal(raw, &it); err != nil {
			out.Errors = append(out.Errors, ItemError{Index: i, Reason: "item is not an object"})
			continue
		}

		if !strings.EqualFold(optString(it.SampleType), "full") {
			out.Skipped++
			continue
		}

		rec, reason := e.normalize(&it, raw)
		if reason != "" {
			out.Errors = append(out.Errors, ItemError{Index: i, ExternalID: rec.ExternalID, Reason: reason})
			continue
		}
		out.Records = append(out.Records, rec)
	}

	return out
}

func (e *Extractor) normalize(it *item, raw json.RawMessage) (Normalized, string) {
	rec := Normalized{
		ExternalID: optString(it.ImageID),
		Raw:        append(json.RawMessage(nil), raw...),
	}
	if rec.ExternalID == "" {
		return rec, "missing imageid"
	}

	sol := optInt(it.Sol)
	if sol == nil || *sol < 0 {
		return rec, "missing or invalid sol"
	}
	rec.Window = *sol

	var cam camera
	if !isNull(it.Camera) {
		_ = json.Unmarshal(it.Camera, &cam)
	}
	rec.SubResource = optString(cam.Instrument)
	if rec.SubResource == "" {
		return rec, "missing camera instrument"
	}

	rec.ContentURL = contentURL(it)
	if rec.ContentURL == "" {
		return rec, "missing full resolution image url"
	}

	rec.EarthDate = EarthDate(e.landing, rec.Window)

	rec.TakenAt = optTime(it.DateTakenUTC)
	if rec.TakenAt == nil {
		rec.TakenAt = optTime(it.DateTaken)
	}
	rec.Title = optString(it.Title)
	rec.Caption = optString(it.Caption)
	rec.Site = optInt(it.Site)
	rec.Drive = optInt(it.Drive)
	rec.Attitude = optTuple(it.Attitude)

	var ext extended
	if !isNull(it.Extended) && json.Unmarshal(it.Extended, &ext) == nil {
		rec.MastAz = optFloat(ext.MastAz)
		rec.MastEl = optFloat(ext.MastEl)
		rec.Sclk = optFloat(ext.Sclk)
		rec.XYZ = optTuple(ext.XYZ)
	}

	return rec, ""
}

func contentURL(it *item) string {
	var files imageFiles
	if !isNull(it.ImageFiles) && json.Unmarshal(it.ImageFiles, &files) == nil {
		if u := optString(files.FullRes); u != "" {
			return u
		}
	}
	if u := optString(it.HTTPSURL); u != "" {
		return u
	}
	return optString(it.URL)
}
