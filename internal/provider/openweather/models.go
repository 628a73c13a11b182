package openweather

// currentResponse is the subset of the current-weather payload we read.
// Pointers distinguish a missing key from a zero value.
type currentResponse struct {
	Name string `json:"name"`
	Dt   *int64 `json:"dt"`
	Main *struct {
		Temp     *float64 `json:"temp"`
		Humidity *float64 `json:"humidity"`
		Pressure *float64 `json:"pressure"`
	} `json:"main"`
	Wind *struct {
		Speed *float64 `json:"speed"`
	} `json:"wind"`
	Coord *struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"coord"`
}
