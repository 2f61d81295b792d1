package main

import "context"

// expireTrials deactivates students whose 14-day trial has lapsed. Intended
// to run from a daily cron job.
func (cli *commandLine) expireTrials() error {
	n, err := cli.studentSvc.ExpireTrials(context.Background())
	if err != nil {
		return err
	}
	logger.Printf("trials expired: %d\n", n)
	return nil
}
