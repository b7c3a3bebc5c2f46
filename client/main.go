package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wfunc/islandserver/game"
	"github.com/wfunc/islandserver/network"
)

const usage = `commands:
  create            create a room and take a seat
  join [room_id]    join a room, or any open one
  login <name>      enter the game
  start             start without waiting for the countdown
  food | water      collect food or water
  wood [draws]      collect wood, risking extra draws
  end               end your turn
  leave             leave the room`

// send formats and sends a message to the WebSocket server.
func send(c *websocket.Conn, msgID uint16, data []byte) error {
	packet, err := network.Encode(msgID, data)
	if err != nil {
		return err
	}
	return c.WriteMessage(websocket.BinaryMessage, packet)
}

func sendAction(c *websocket.Conn, action game.Action) error {
	data, err := game.EncodeAction(action)
	if err != nil {
		return err
	}
	return send(c, network.MsgTypePlayerAction, data)
}

// command turns one line of input into a message. ok is false for unknown input.
func command(c *websocket.Conn, line string) (ok bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return true, nil
	}

	switch fields[0] {
	case "create":
		return true, send(c, network.MsgTypeCreateRoom, nil)
	case "join":
		req := map[string]string{}
		if len(fields) > 1 {
			req["room_id"] = fields[1]
		}
		data, _ := json.Marshal(req)
		return true, send(c, network.MsgTypeJoinRoom, data)
	case "login":
		if len(fields) < 2 {
			return false, nil
		}
		return true, sendAction(c, game.LogIn{PlayerName: strings.Join(fields[1:], " ")})
	case "start":
		return true, send(c, network.MsgTypeStartGame, nil)
	case "food":
		return true, sendAction(c, game.CollectFood{})
	case "water":
		return true, sendAction(c, game.CollectWater{})
	case "wood":
		draws := 0
		if len(fields) > 1 {
			n, err := strconv.Atoi(fields[1])
			if err != nil || n < 0 || n > game.MaxWoodDraws {
				return false, nil
			}
			draws = n
		}
		return true, sendAction(c, game.CollectWood{Draws: uint8(draws)})
	case "end":
		return true, sendAction(c, game.EndTurn{})
	case "leave":
		return true, send(c, network.MsgTypeLeaveRoom, nil)
	}
	return false, nil
}

func main() {
	addr := flag.String("addr", "localhost:8080", "game server address")
	flag.Parse()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws"}
	log.Printf("Connecting to %s", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	done := make(chan struct{})

	// Read loop
	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				log.Println("Read error:", err)
				return
			}
			packet, err := network.Decode(message)
			if err != nil {
				log.Printf("Received invalid packet of size %d", len(message))
				continue
			}
			if packet.MsgID == network.MsgTypeHeartbeat {
				continue
			}
			log.Printf("<- RECV (ID: %d): %s", packet.MsgID, string(packet.Data))
		}
	}()

	// keep the server's read deadline from expiring while we sit idle
	go func() {
		ticker := time.NewTicker(20 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := send(c, network.MsgTypeHeartbeat, nil); err != nil {
					return
				}
			}
		}
	}()

	log.Println("Client started.\n" + usage)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	// Write loop
	for {
		select {
		case <-done:
			return
		case <-interrupt:
			log.Println("Interrupt received, closing connection.")
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				log.Println("Write close error:", err)
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		case line, open := <-lines:
			if !open {
				return
			}
			ok, err := command(c, line)
			if err != nil {
				log.Println("Write error:", err)
				return
			}
			if !ok {
				log.Println(usage)
			}
		}
	}
}
