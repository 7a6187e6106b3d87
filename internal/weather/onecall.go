package weather

import (
	"fmt"
	"math"
	"time"
)

// OneCallAPI is the api_name recorded in call and error logs.
const OneCallAPI = "one_call"

// OneCallResponse is the decoded body of the One Call 3.0 endpoint.
type OneCallResponse struct {
	Lat            float64        `json:"lat"`
	Lon            float64        `json:"lon"`
	Timezone       string         `json:"timezone"`
	TimezoneOffset *int           `json:"timezone_offset"`
	Current        *CurrentData   `json:"current"`
	Minutely       []MinutelyData `json:"minutely"`
	Hourly         []HourlyData   `json:"hourly"`
	Daily          []DailyData    `json:"daily"`
	Alerts         []AlertData    `json:"alerts"`
}

type ConditionData struct {
	ID          int    `json:"id"`
	Main        string `json:"main"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

// Precip1h is the {"1h": x} object used for rain and snow in current/hourly data.
type Precip1h struct {
	OneHour *float64 `json:"1h"`
}

type CurrentData struct {
	Dt         int64           `json:"dt"`
	Sunrise    *int64          `json:"sunrise"`
	Sunset     *int64          `json:"sunset"`
	Temp       *float64        `json:"temp"`
	FeelsLike  *float64        `json:"feels_like"`
	Pressure   *int            `json:"pressure"`
	Humidity   *int            `json:"humidity"`
	DewPoint   *float64        `json:"dew_point"`
	UVI        *float64        `json:"uvi"`
	Clouds     *int            `json:"clouds"`
	Visibility *int            `json:"visibility"`
	WindSpeed  *float64        `json:"wind_speed"`
	WindDeg    *int            `json:"wind_deg"`
	WindGust   *float64        `json:"wind_gust"`
	Rain       *Precip1h       `json:"rain"`
	Snow       *Precip1h       `json:"snow"`
	Weather    []ConditionData `json:"weather"`
}

type MinutelyData struct {
	Dt            int64   `json:"dt"`
	Precipitation float64 `json:"precipitation"`
}

type HourlyData struct {
	Dt         int64           `json:"dt"`
	Temp       *float64        `json:"temp"`
	FeelsLike  *float64        `json:"feels_like"`
	Pressure   *int            `json:"pressure"`
	Humidity   *int            `json:"humidity"`
	DewPoint   *float64        `json:"dew_point"`
	UVI        *float64        `json:"uvi"`
	Clouds     *int            `json:"clouds"`
	Visibility *int            `json:"visibility"`
	WindSpeed  *float64        `json:"wind_speed"`
	WindDeg    *int            `json:"wind_deg"`
	WindGust   *float64        `json:"wind_gust"`
	Pop        *float64        `json:"pop"`
	Rain       *Precip1h       `json:"rain"`
	Snow       *Precip1h       `json:"snow"`
	Weather    []ConditionData `json:"weather"`
}

// DayTemps covers both "temp" (with min/max) and "feels_like" daily objects.
type DayTemps struct {
	Day   *float64 `json:"day"`
	Min   *float64 `json:"min"`
	Max   *float64 `json:"max"`
	Night *float64 `json:"night"`
	Eve   *float64 `json:"eve"`
	Morn  *float64 `json:"morn"`
}

type DailyData struct {
	Dt        int64           `json:"dt"`
	Sunrise   *int64          `json:"sunrise"`
	Sunset    *int64          `json:"sunset"`
	Moonrise  *int64          `json:"moonrise"`
	Moonset   *int64          `json:"moonset"`
	MoonPhase *float64        `json:"moon_phase"`
	Summary   string          `json:"summary"`
	Temp      DayTemps        `json:"temp"`
	FeelsLike DayTemps        `json:"feels_like"`
	Pressure  *int            `json:"pressure"`
	Humidity  *int            `json:"humidity"`
	DewPoint  *float64        `json:"dew_point"`
	UVI       *float64        `json:"uvi"`
	Clouds    *int            `json:"clouds"`
	WindSpeed *float64        `json:"wind_speed"`
	WindDeg   *int            `json:"wind_deg"`
	WindGust  *float64        `json:"wind_gust"`
	Pop       *float64        `json:"pop"`
	Rain      *float64        `json:"rain"`
	Snow      *float64        `json:"snow"`
	Weather   []ConditionData `json:"weather"`
}

type AlertData struct {
	SenderName  string   `json:"sender_name"`
	Event       string   `json:"event"`
	Start       int64    `json:"start"`
	End         int64    `json:"end"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// APIError is returned by clients when the API answers with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API call failed with status code %d", e.StatusCode)
}

func unixUTC(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

func unixPtr(sec *int64) *time.Time {
	if sec == nil {
		return nil
	}
	t := unixUTC(*sec)
	return &t
}

// dec2 rounds to two decimal places, the precision every decimal column keeps.
func dec2(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := math.Round(*v*100) / 100
	return &r
}

func precip(p *Precip1h) *float64 {
	if p == nil {
		return nil
	}
	return dec2(p.OneHour)
}

func firstCondition(items []ConditionData) Condition {
	if len(items) == 0 {
		return Condition{}
	}
	c := items[0]
	id := c.ID
	return Condition{
		ID:          &id,
		Main:        c.Main,
		Description: c.Description,
		Icon:        c.Icon,
	}
}
