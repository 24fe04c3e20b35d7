// Command liveliness-demo exercises the liveliness QoS machinery over the
// in-process loopback domain. It drives one role (publisher or subscriber)
// with the requested liveliness kind and prints listener events.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"rtps"
	"rtps/guid"
	"rtps/liveliness"
	"rtps/metrics"
	"rtps/profiles"
	"rtps/transport"
)

var topic = flag.String("topic", "liveliness-demo", "topic name")
var samples = flag.Int("samples", 3, "number of samples the publisher writes")
var interval = flag.Duration("interval", time.Second, "spacing between publisher writes")
var lease = flag.Duration("lease", 500*time.Millisecond, "liveliness lease duration")
var announcement = flag.Duration("announcement", 250*time.Millisecond, "liveliness announcement period")
var profileFile = flag.String("profiles", "", "TOML profile file")
var profileName = flag.String("profile", "", "profile name within -profiles")
var dumpMetrics = flag.Bool("metrics", false, "dump metrics on exit")

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s [flags] publisher|subscriber AUTOMATIC|MANUAL_BY_PARTICIPANT|MANUAL_BY_TOPIC\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() != 2 {
		usage()
		os.Exit(1)
	}
	role := flag.Arg(0)
	if role != "publisher" && role != "subscriber" {
		log.Fatalf("init_failed reason=unknown_role role=%s", role)
	}
	kind, err := liveliness.ParseKind(flag.Arg(1))
	if err != nil {
		log.Fatalf("init_failed reason=bad_kind err=%v", err)
	}

	leaseDuration := *lease
	announcementPeriod := *announcement
	reliability := transport.Reliable
	if *profileFile != "" {
		loaded, err := profiles.LoadFile(*profileFile)
		if err != nil {
			log.Fatalf("init_failed reason=bad_profiles err=%v", err)
		}
		profile, ok := loaded[*profileName]
		if !ok {
			log.Fatalf("init_failed reason=unknown_profile profile=%s", *profileName)
		}
		kind = profile.Kind
		leaseDuration = profile.LeaseDuration
		announcementPeriod = profile.AnnouncementPeriod
		reliability = profile.Reliability
	}

	domain := transport.NewDomain()
	pubMetrics := metrics.New("publisher")
	subMetrics := metrics.New("subscriber")

	publisher, err := rtps.NewParticipant(rtps.Config{Name: "publisher", Domain: domain, Metrics: pubMetrics})
	if err != nil {
		log.Fatalf("init_failed reason=participant err=%v", err)
	}
	defer publisher.Close()
	subscriber, err := rtps.NewParticipant(rtps.Config{Name: "subscriber", Domain: domain, Metrics: subMetrics})
	if err != nil {
		log.Fatalf("init_failed reason=participant err=%v", err)
	}
	defer subscriber.Close()

	var recoveredEvents, dataSamples atomic.Int64

	writer, err := publisher.NewWriter(*topic).
		Reliability(reliability).
		LivelinessKind(kind).
		LivelinessLeaseDuration(leaseDuration).
		LivelinessAnnouncementPeriod(announcementPeriod).
		Listener(rtps.WriterListener{
			OnLivelinessLost: func(status liveliness.LostStatus) {
				log.Printf("writer_liveliness_lost total=%d change=%d", status.TotalCount, status.TotalCountChange)
			},
		}).
		Init()
	if err != nil {
		log.Fatalf("init_failed reason=writer err=%v", err)
	}

	reader, err := subscriber.NewReader(*topic).
		Reliability(reliability).
		LivelinessKind(kind).
		LivelinessLeaseDuration(leaseDuration).
		Listener(rtps.ReaderListener{
			OnLivelinessChanged: func(status liveliness.ChangedStatus) {
				if status.AliveCountChange > 0 {
					recoveredEvents.Add(1)
				}
				log.Printf("reader_liveliness_changed alive=%d not_alive=%d alive_change=%d not_alive_change=%d writer=%s",
					status.AliveCount, status.NotAliveCount, status.AliveCountChange, status.NotAliveCountChange, status.LastWriter)
			},
			OnData: func(writer guid.GUID, payload []byte) {
				dataSamples.Add(1)
				log.Printf("sample_received writer=%s bytes=%d", writer, len(payload))
			},
		}).
		Init()
	if err != nil {
		log.Fatalf("init_failed reason=reader err=%v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		switch role {
		case "publisher":
			for i := 0; i < *samples; i++ {
				payload := fmt.Sprintf("sample %d", i+1)
				if err := writer.Write([]byte(payload)); err != nil {
					log.Printf("write_failed err=%v", err)
					return
				}
				log.Printf("sample_written index=%d", i+1)
				time.Sleep(*interval)
			}
			if kind == liveliness.ManualByTopic {
				if err := writer.AssertLiveliness(); err != nil {
					log.Printf("assert_failed err=%v", err)
				}
				log.Printf("liveliness_asserted writer=%s", writer.GUID())
			}
		case "subscriber":
			wait := time.Duration(*samples)*(*interval) + 2*leaseDuration
			time.Sleep(wait)
		}
		// Let the final lease expiry and its notifications land.
		time.Sleep(2 * leaseDuration)
	}()

	select {
	case <-done:
	case sig := <-sigCh:
		log.Printf("shutdown signal=%s", sig)
	}

	alive, notAlive := reader.LivelinessCounts()
	log.Printf("summary role=%s kind=%s writer_lost=%d reader_recovered=%d samples=%d alive=%d not_alive=%d",
		role, kind, writer.LivelinessLostTotal(), recoveredEvents.Load(), dataSamples.Load(), alive, notAlive)

	if *dumpMetrics {
		pubMetrics.WritePrometheus(os.Stdout)
		subMetrics.WritePrometheus(os.Stdout)
	}
}
