package main

import (
	"flag"
	"fmt"
	"log"

	"hopfield_sync/hop_controllers"
)

// Runs a simulation grid without the control server and prints the stored
// session table when done.
func main() {
	settingsFile := flag.String("settings", "", "simulation settings file, defaults to SIMULATION_SETTINGS")
	dump := flag.Bool("dump", false, "print the session table as JSON after the run")
	flag.Parse()

	cfg, err := hop_controllers.LoadServerConfig()
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}
	if *settingsFile == "" {
		*settingsFile = cfg.SimulationSettings
	}

	dbController, err := hop_controllers.NewDatabaseController(cfg)
	if err != nil {
		log.Fatalf("Error opening database: %v", err)
	}
	defer dbController.CloseDb()

	simController := hop_controllers.SimulationController{
		DatabaseController: dbController,
		NtpServer:          cfg.NtpServer,
	}
	simSettings, err := simController.LoadSimulationSettings(*settingsFile)
	if err != nil {
		log.Fatalf("Error loading settings: %v", err)
	}

	records := simController.Simulate(simSettings, hop_controllers.NewSessionMap())
	for _, record := range records {
		recovered := 0
		for _, session := range record.Sessions {
			if session.Recovered {
				recovered++
			}
		}
		fmt.Printf("%s n=%d k=%d noise=%d %s/%s/%s: %d/%d recovered\n",
			record.Uid[:8], record.Settings.N, record.Settings.K, record.Settings.Noise,
			record.Settings.Corruption, record.Settings.StorageRule, record.Settings.UpdateRule,
			recovered, len(record.Sessions))
	}

	if *dump {
		table, err := dbController.FetchFullTableAsJSON()
		if err != nil {
			log.Fatalf("Error dumping sessions: %v", err)
		}
		fmt.Println(table)
	}
}
