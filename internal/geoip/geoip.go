package geoip

import (
	"net"

	"github.com/oschwald/geoip2-golang"
	"github.com/sirupsen/logrus"
)

// Location is the geo resolution of a client IP. Empty fields are unknown.
type Location struct {
	Country string
	Region  string
	City    string
}

// Lookup resolves IPs to locations. It never fails; unknown IPs yield an empty Location.
type Lookup interface {
	Lookup(ip net.IP) Location
	Close() error
}

// Open loads a MaxMind City database. An empty path or an unreadable file yields a lookup
// that resolves nothing, so geo data is simply absent.
func Open(path string) Lookup {
	if path == "" {
		return Noop{}
	}
	reader, err := geoip2.Open(path)
	if err != nil {
		logrus.WithError(err).WithField("path", path).Warn("geoip database unavailable, geo lookup disabled")
		return Noop{}
	}
	logrus.WithField("path", path).Info("geoip database loaded")
	return &maxmind{reader: reader}
}

type maxmind struct {
	reader *geoip2.Reader
}

func (m *maxmind) Lookup(ip net.IP) Location {
	if ip == nil {
		return Location{}
	}
	record, err := m.reader.City(ip)
	if err != nil {
		return Location{}
	}

	return fromCity(record)
}

// fromCity keeps ISO codes for country and region and the English city name
func fromCity(record *geoip2.City) Location {
	loc := Location{
		Country: record.Country.IsoCode,
		City:    record.City.Names["en"],
	}
	if len(record.Subdivisions) > 0 {
		loc.Region = record.Subdivisions[0].IsoCode
	}
	return loc
}

func (m *maxmind) Close() error {
	return m.reader.Close()
}

// Noop resolves nothing
type Noop struct{}

func (Noop) Lookup(net.IP) Location { return Location{} }

func (Noop) Close() error { return nil }
