// Command genfeed writes sample feed files in the upstream RKI formats:
// a daily county-level COVID CSV and weekly state-level influenza and RSV
// TSVs. Point the *_URL config vars at the written files (via a local file
// server) to run the pipeline without hitting the real feeds.
//
// Usage:
//
//	go run ./cmd/genfeed -out testdata/feeds -days 21 -weeks 8
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"time"
)

var sampleCounties = []string{"01001", "01002", "05315", "06533", "09162", "11000", "14612", "16055"}

var sampleStates = []string{"01", "02", "05", "06", "09", "11", "14", "16"}

var weeklyAgeGroups = []string{"00+", "00-04", "05-14", "15-34", "35-59", "60+"}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	outDir := flag.String("out", "testdata/feeds", "output directory for feed files")
	days := flag.Int("days", 21, "number of trailing days in the daily feed")
	weeks := flag.Int("weeks", 8, "number of trailing ISO weeks in the weekly feeds")
	asOf := flag.String("as-of", "", "latest feed date, YYYY-MM-DD (default: today)")
	seed := flag.Int64("seed", 1, "random seed, fixed for reproducible fixtures")
	flag.Parse()

	latest := time.Now().UTC()
	if *asOf != "" {
		parsed, err := time.Parse("2006-01-02", *asOf)
		if err != nil {
			return fmt.Errorf("parsing -as-of: %w", err)
		}
		latest = parsed
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(*seed))

	if err := writeDailyCSV(filepath.Join(*outDir, "covid.csv"), latest, *days, rng); err != nil {
		return fmt.Errorf("writing covid feed: %w", err)
	}
	for _, name := range []string{"influenza", "rsv"} {
		if err := writeWeeklyTSV(filepath.Join(*outDir, name+".tsv"), latest, *weeks, rng); err != nil {
			return fmt.Errorf("writing %s feed: %w", name, err)
		}
	}

	log.Printf("wrote feeds to %s", *outDir)
	return nil
}

func writeDailyCSV(path string, latest time.Time, days int, rng *rand.Rand) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"Meldedatum", "IdLandkreis", "Altersgruppe", "Faelle_7-Tage", "Bevoelkerung", "Inzidenz_7-Tage"}); err != nil {
		return err
	}

	for offset := days - 1; offset >= 0; offset-- {
		date := latest.AddDate(0, 0, -offset).Format("2006-01-02")
		for _, county := range sampleCounties {
			population := 50000 + rng.Intn(950000)
			cases := rng.Intn(population / 2000)
			incidence := float64(cases) / float64(population) * 100000
			row := []string{
				date,
				county,
				"00+",
				fmt.Sprintf("%d", cases),
				fmt.Sprintf("%d", population),
				fmt.Sprintf("%.2f", incidence),
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
	}

	w.Flush()
	return w.Error()
}

func writeWeeklyTSV(path string, latest time.Time, weeks int, rng *rand.Rand) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = '\t'
	if err := w.Write([]string{"Meldewoche", "Region_Id", "Altersgruppe", "Fallzahl", "Inzidenz"}); err != nil {
		return err
	}

	for offset := weeks - 1; offset >= 0; offset-- {
		year, week := latest.AddDate(0, 0, -7*offset).ISOWeek()
		weekKey := fmt.Sprintf("%04d-W%02d", year, week)
		for _, state := range sampleStates {
			for _, age := range weeklyAgeGroups {
				cases := rng.Intn(400)
				row := []string{
					weekKey,
					state,
					age,
					fmt.Sprintf("%d", cases),
					fmt.Sprintf("%.1f", float64(cases)/10),
				}
				if err := w.Write(row); err != nil {
					return err
				}
			}
		}
	}

	w.Flush()
	return w.Error()
}
