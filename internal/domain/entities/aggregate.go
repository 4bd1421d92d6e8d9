package entities

// DistrictAggregate is the complaint count of one extracted district.
type DistrictAggregate struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// StreetAggregate summarizes the readings of one extracted street. District
// is taken from the first record seen for the street.
type StreetAggregate struct {
	Street       string  `json:"street"`
	District     string  `json:"district"`
	AverageLevel float64 `json:"average_level"`
	SampleCount  int     `json:"sample_count"`
}

// HourlyAggregate summarizes the readings taken during one hour of the day.
// Hours without samples have no row.
type HourlyAggregate struct {
	Hour         int     `json:"hour"`
	AverageLevel float64 `json:"average_level"`
	SampleCount  int     `json:"sample_count"`
}

// DailyAggregate summarizes the readings of one calendar day, labeled
// "D Mon" (e.g. "5 Jun").
type DailyAggregate struct {
	DayLabel     string  `json:"day_label"`
	AverageLevel float64 `json:"average_level"`
	SampleCount  int     `json:"sample_count"`
}
