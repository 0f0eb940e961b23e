// Package domain models local atmospheric soundings and ground-station
// observations used to draw the cloud-base lapse chart.
//
// # Data Sources
//
// Vertical temperature profiles come from the NOAA PSL Radio Acoustic Sounding
// System (RASS) at Santa Barbara. Each report is a fixed-width text file named
// sbaYYDDD.HHt with a header block and a height/temperature table:
//
//	 SBA   34.42 -119.84   10
//	 25  2 14 18 04 30   0   0   3
//	 ...
//	   HT     TEMP   ...
//	  0.152   14.3   ...
//	  0.258   13.9   ...
//	$
//
// Heights are kilometres above the site; temperature is degrees Celsius. The
// value 999999 is the missing-data sentinel.
//
// Ground observations come from the MADIS public XML feed (primary) and the
// CWOP/findU weather XML feed (secondary). MADIS reports temperature and
// dewpoint in Kelvin and wind in m/s; CWOP reports Fahrenheit, relative
// humidity and mph.
//
// # Recency
//
// A station observation is recent when its temperature was observed no more
// than 60 minutes before the run's reference time. Rows without a temperature
// time are never recent.
//
// # Profile Grid
//
// Raw sounding points are linearly resampled onto every multiple of 100 m
// between the lowest and highest sample. See [Resample].
package domain
