package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Cron runs periodic maintenance jobs.
type Cron struct {
	cron *cron.Cron
	log  *logrus.Entry
}

func NewCron() *Cron {
	return &Cron{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithSeconds(),
		),
		log: logrus.WithField("component", "cron"),
	}
}

func (c *Cron) Add(name, spec string, job func()) error {
	if _, err := c.cron.AddFunc(spec, func() {
		c.log.Debugf("running job %s", name)
		job()
	}); err != nil {
		return fmt.Errorf("registering job %s: %w", name, err)
	}
	c.log.Infof("registered job %s (%s)", name, spec)
	return nil
}

func (c *Cron) Start() {
	c.cron.Start()
}

func (c *Cron) Stop() {
	ctx := c.cron.Stop()
	<-ctx.Done()
	c.log.Info("cron stopped")
}

func (c *Cron) Jobs() int {
	return len(c.cron.Entries())
}
