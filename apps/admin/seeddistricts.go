package main

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/shulehq/shule/core/district"
)

// seedDistricts loads districts from a CSV file with rows of the form:
//
//	name,state,zip_codes,curriculum,standards,seats_total
//
// zip_codes and standards are semicolon-separated. A header row is detected
// and skipped. Districts already present (same name and state) are skipped.
func (cli *commandLine) seedDistricts(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "opening districts file")
	}
	defer f.Close()

	ctx := context.Background()
	r := csv.NewReader(f)
	r.FieldsPerRecord = 6

	var line, created, skipped int
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrapf(err, "reading districts file, line %d", line+1)
		}
		line++
		if line == 1 && strings.EqualFold(record[0], "name") {
			continue // header
		}

		seats, err := strconv.Atoi(strings.TrimSpace(record[5]))
		if err != nil {
			return errors.Wrapf(err, "parsing seats_total, line %d", line)
		}
		nd := district.NewDistrict{
			Name:       record[0],
			State:      record[1],
			ZIPCodes:   splitList(record[2]),
			Curriculum: record[3],
			Standards:  splitList(record[4]),
			SeatsTotal: seats,
		}

		if _, err := cli.districtSvc.GetByName(ctx, nd.Name, nd.State); err == nil {
			skipped++
			continue
		} else if errors.Cause(err) != district.ErrNotFound {
			return errors.Wrapf(err, "checking for existing district, line %d", line)
		}

		if _, err := cli.districtSvc.Register(ctx, nd); err != nil {
			return errors.Wrapf(err, "registering district, line %d", line)
		}
		created++
	}

	logger.Printf("districts seeded: %d created, %d skipped\n", created, skipped)
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ";") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
