package era5

// Record is the wind reading at one pressure level and geo location at a
// given time.
type Record struct {
	// Dimensions
	Timestamp int64 // unix milliseconds
	Level     float32
	Latitude  float32
	Longitude float32

	// Metrics
	ZonalWind        float32 // u, m/s
	MeridionalWind   float32 // v, m/s
	VerticalVelocity float32 // w, Pa/s
}
